package parser

// componentCategories maps a component reference prefix to the step group name
// used for its measurements. Lookups are case-sensitive.
var componentCategories = map[string]string{
	"R":   "Resistors",
	"RP":  "Resistors",
	"RS":  "Resistors",
	"C":   "Capacitors",
	"CS":  "Capacitors",
	"CP":  "Capacitors",
	"DSC": "Capacitors",
	"L":   "Inductors",
	"D":   "Diodes",
	"Q":   "Transistors",
	"CON": "Connectors",
	"SHO": "Short",
	"TC":  "Thermocouple",
	"PTC": "PTC",
	"DZ":  "ZenerDiodes",
	"F":   "Fuses",
	"J":   "Jumpers",
	"T":   "Transformers",
	"ISO": "Isolators",
	"U":   "ICs",
}

// CategoryForReference derives the step group name for a component reference.
// "R12" -> "Resistors", "U3A" -> "ICs", "XYZ99" -> "XYZ".
// A reference without a leading letter is returned unchanged.
func CategoryForReference(ref string) string {
	prefix := referencePrefix(ref)
	if prefix == "" {
		return ref
	}
	if name, ok := componentCategories[prefix]; ok {
		return name
	}
	return prefix
}

// referencePrefix returns the leading run of ASCII letters of ref.
func referencePrefix(ref string) string {
	i := 0
	for ; i < len(ref); i++ {
		c := ref[i]
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			break
		}
	}
	return ref[:i]
}
