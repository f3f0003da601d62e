package cart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/validate"
)

var (
	ErrUnknownItem = errors.New("unknown item")
	ErrEmptyCart   = errors.New("cart is empty")
	ErrInvalidStep = errors.New("invalid step")
)

// Step is the visible panel of the two-step flow.
type Step int

const (
	StepSelect   Step = 1
	StepCheckout Step = 2
)

// Catalog is the fixed set of selectable items.
type Catalog struct {
	items map[string]chapter.Item
	order []string
}

func NewCatalog(items []chapter.Item) *Catalog {
	c := &Catalog{items: make(map[string]chapter.Item, len(items))}
	for _, it := range items {
		if _, dup := c.items[it.ID]; dup {
			continue
		}
		c.items[it.ID] = it
		c.order = append(c.order, it.ID)
	}
	return c
}

func (c *Catalog) Lookup(id string) (chapter.Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Summary drives the selection header and the call-to-action button.
type Summary struct {
	Count          int      `json:"count"`
	Label          string   `json:"label"`
	ButtonDisabled bool     `json:"buttonDisabled"`
	ButtonCount    string   `json:"buttonCount"`
	Step           Step     `json:"step"`
	Items          []string `json:"items"`
}

// Order is the record composed at checkout.
type Order struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Items     []string  `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// Cart is one viewer's selection. Items keep the order they were selected in.
type Cart struct {
	catalog *Catalog

	mu       sync.Mutex
	order    []string
	selected map[string]struct{}
	step     Step
}

func New(catalog *Catalog) *Cart {
	return &Cart{
		catalog:  catalog,
		selected: make(map[string]struct{}),
		step:     StepSelect,
	}
}

// Toggle selects id if it is not selected and deselects it otherwise.
// It reports whether id is selected afterwards.
func (c *Cart) Toggle(id string) (bool, error) {
	if _, ok := c.catalog.Lookup(id); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return false, nil
	}
	c.selected[id] = struct{}{}
	c.order = append(c.order, id)
	return true, nil
}

func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cart) Items() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsLocked()
}

func (c *Cart) itemsLocked() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Cart) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.order)
	label := fmt.Sprintf("%d items selected", n)
	if n == 1 {
		label = "1 item selected"
	}
	buttonCount := ""
	if n > 0 {
		buttonCount = fmt.Sprintf("(%d)", n)
	}
	return Summary{
		Count:          n,
		Label:          label,
		ButtonDisabled: n == 0,
		ButtonCount:    buttonCount,
		Step:           c.step,
		Items:          c.itemsLocked(),
	}
}

// Entries lists the selected catalog items for the checkout panel.
func (c *Cart) Entries() []chapter.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chapter.Item, 0, len(c.order))
	for _, id := range c.order {
		if it, ok := c.catalog.Lookup(id); ok {
			out = append(out, it)
		}
	}
	return out
}

// GoToCheckout moves to the checkout panel. It refuses an empty cart.
func (c *Cart) GoToCheckout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return ErrEmptyCart
	}
	c.step = StepCheckout
	return nil
}

func (c *Cart) GoToStep(step Step) error {
	if step == StepCheckout {
		return c.GoToCheckout()
	}
	if step != StepSelect {
		return fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = StepSelect
	return nil
}

// Checkout composes the order from the current selection and clears that
// selection in one step, so a second checkout of the same cart finds it
// empty. The cart returns to the first step.
func (c *Cart) Checkout(name, address string, now time.Time) (Order, error) {
	if msg := validate.OrderName(name); msg != "" {
		return Order{}, &ValidationError{Message: msg}
	}
	if msg := validate.OrderAddress(address); msg != "" {
		return Order{}, &ValidationError{Message: msg}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return Order{}, ErrEmptyCart
	}
	order := Order{
		ID:        uuid.NewString(),
		Name:      name,
		Address:   address,
		Items:     c.order,
		Timestamp: now.UTC(),
	}
	c.order = nil
	c.selected = make(map[string]struct{})
	c.step = StepSelect
	return order, nil
}

// Restore puts items taken by Checkout back ahead of anything selected since
// and reopens the checkout panel.
func (c *Cart) Restore(items []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var restored []string
	for _, id := range items {
		if _, ok := c.catalog.Lookup(id); !ok {
			continue
		}
		if _, ok := c.selected[id]; ok {
			continue
		}
		c.selected[id] = struct{}{}
		restored = append(restored, id)
	}
	c.order = append(restored, c.order...)
	if len(c.order) > 0 {
		c.step = StepCheckout
	}
}

// ValidationError is a checkout form field problem.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
