package pet

// CareKind says which gauge a care item raises.
type CareKind string

const (
	CareFood     CareKind = "FOOD"     // Raises hunger
	CareActivity CareKind = "ACTIVITY" // Raises happiness
)

// CareItem is one entry of the feed/play panels.
type CareItem struct {
	Name  string   `json:"name"`
	Kind  CareKind `json:"kind"`
	Value int      `json:"value"`
}

// Foods lists the feed panel in display order.
var Foods = []CareItem{
	{Name: "Apple", Kind: CareFood, Value: 10},
	{Name: "Gold Coin", Kind: CareFood, Value: 20},
	{Name: "Treasure Chest", Kind: CareFood, Value: 40},
}

// Activities lists the play panel in display order.
var Activities = []CareItem{
	{Name: "Play", Kind: CareActivity, Value: 10},
	{Name: "Cuddle", Kind: CareActivity, Value: 15},
	{Name: "Dance", Kind: CareActivity, Value: 25},
}

// LookupCare finds a care item of the given kind by name.
func LookupCare(kind CareKind, name string) (CareItem, bool) {
	list := Foods
	if kind == CareActivity {
		list = Activities
	}
	for _, it := range list {
		if it.Name == name {
			return it, true
		}
	}
	return CareItem{}, false
}
