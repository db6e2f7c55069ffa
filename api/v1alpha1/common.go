package v1alpha1

func StringToTaskStatus(s string) (TaskStatus, bool) {
	switch s {
	case string(TaskStatusOpen):
		return TaskStatusOpen, true
	case string(TaskStatusOffered):
		return TaskStatusOffered, true
	case string(TaskStatusConverted):
		return TaskStatusConverted, true
	default:
		return "", false
	}
}

func StringToOfferStatus(s string) (OfferStatus, bool) {
	switch OfferStatus(s) {
	case OfferStatusPending, OfferStatusConverting, OfferStatusAccepted, OfferStatusDeclined,
		OfferStatusPublished, OfferStatusRefunding, OfferStatusRefunded, OfferStatusCancelled:
		return OfferStatus(s), true
	default:
		return "", false
	}
}
