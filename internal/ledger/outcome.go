package ledger

// AppendOutcome reports what Append decided about a candidate block.
// Rejections are ordinary outcomes, not errors: the ledger stays intact and
// keeps accepting future blocks. Only storage trouble surfaces as an error,
// paired with AppendStorageFailure.
type AppendOutcome int

const (
	AppendAccepted AppendOutcome = iota
	AppendRejectedHashMismatch
	AppendRejectedLinkage
	AppendStorageFailure
)

// Accepted reports whether the block was appended.
func (o AppendOutcome) Accepted() bool {
	return o == AppendAccepted
}

func (o AppendOutcome) String() string {
	switch o {
	case AppendAccepted:
		return "accepted"
	case AppendRejectedHashMismatch:
		return "rejected_hash_mismatch"
	case AppendRejectedLinkage:
		return "rejected_linkage"
	case AppendStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}
