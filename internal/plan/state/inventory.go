package state

// Inventory is the credit of items used since the last resupply. The state only asks
// yes/no and ratio questions; slot packing lives elsewhere.
type Inventory interface {
	CanAdd(items []string) bool
	Add(items []string) Inventory
	// AddableRatio is the fraction of the given item kinds that would still fit, in [0,1].
	AddableRatio(items []string) float64
	Empty() bool
	Reset() Inventory
}

// Unlimited never fills up and never needs a resupply.
type Unlimited struct{}

func (Unlimited) CanAdd([]string) bool          { return true }
func (u Unlimited) Add([]string) Inventory      { return u }
func (Unlimited) AddableRatio([]string) float64 { return 1 }
func (Unlimited) Empty() bool                   { return true }
func (u Unlimited) Reset() Inventory            { return u }
