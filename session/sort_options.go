package session

const (
	SortNone        = ""
	SortFilenameAsc = "filename_asc"
	SortFilenameNat = "filename_nat"
	SortDateDesc    = "date_desc"
	SortDateAsc     = "date_asc"
)

// DefaultSortOrder leaves records in intake order.
const DefaultSortOrder = SortNone

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortNone, SortFilenameAsc, SortFilenameNat, SortDateDesc, SortDateAsc:
		return true
	default:
		return false
	}
}
