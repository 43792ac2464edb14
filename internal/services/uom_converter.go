package services

import "strings"

// UnitKind groups units that convert into each other
type UnitKind string

const (
	KindMass    UnitKind = "mass"
	KindVolume  UnitKind = "volume"
	KindUnknown UnitKind = ""
)

type unitDef struct {
	kind UnitKind
	// size of one unit in kilograms (mass) or liters (volume)
	toBase float64
}

var unitTable = map[string]unitDef{
	"mg": {KindMass, 0.000001},
	"g":  {KindMass, 0.001},
	"kg": {KindMass, 1},
	"oz": {KindMass, 0.0283495},
	"lb": {KindMass, 0.453592},
	"ml": {KindVolume, 0.001},
	"l":  {KindVolume, 1},
}

var unitAliases = map[string]string{
	"gr": "g", "gram": "g", "grams": "g", "г": "g", "грамм": "g",
	"kgs": "kg", "kilogram": "kg", "kilograms": "kg", "кг": "kg",
	"lbs": "lb", "pound": "lb", "pounds": "lb",
	"ounce": "oz", "ounces": "oz",
	"lt": "l", "ltr": "l", "liter": "l", "liters": "l", "litre": "l", "л": "l",
	"milliliter": "ml", "milliliters": "ml", "мл": "ml",
}

// NormalizeUnit lower-cases a unit and maps known aliases to their canonical symbol
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// KindOf returns the kind of a unit, or KindUnknown
func KindOf(unit string) UnitKind {
	return unitTable[NormalizeUnit(unit)].kind
}

// ConvertQuantity converts qty from one unit to another of the same kind.
// Unknown units, empty units and cross-kind pairs return qty unchanged and ok=false.
func ConvertQuantity(qty float64, fromUnit, toUnit string) (float64, bool) {
	from, to := NormalizeUnit(fromUnit), NormalizeUnit(toUnit)
	if from == "" || to == "" || from == to {
		return qty, from == to && from != ""
	}
	f, fok := unitTable[from]
	t, tok := unitTable[to]
	if !fok || !tok || f.kind != t.kind {
		return qty, false
	}
	return qty * f.toBase / t.toBase, true
}

// ToKilograms converts a recipe quantity to kilograms for costing. Volumes are taken at
// 1 l = 1 kg, matching how liter packs are priced; unknown units pass through.
func ToKilograms(qty float64, unit string) float64 {
	def, ok := unitTable[NormalizeUnit(unit)]
	if !ok {
		return qty
	}
	return qty * def.toBase
}
