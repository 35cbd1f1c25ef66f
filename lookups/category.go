package lookups

// Symbols of legal values
// (categories apply to protests and boycotts alike)
const (
	CategoryOther int32 = iota
	CategoryEnvironment
	CategoryLabour
	CategoryHumanRights
	CategoryConsumer
	CategoryPolitics
)

// Category returns a "generic" string for a given value
func Category(value int32) string {

	var str = ""

	switch {
	case value == CategoryOther:
		str = "other"
	case value == CategoryEnvironment:
		str = "environment"
	case value == CategoryLabour:
		str = "labour"
	case value == CategoryHumanRights:
		str = "human rights"
	case value == CategoryConsumer:
		str = "consumer"
	case value == CategoryPolitics:
		str = "politics"
	}

	return str
}
