package mappers

import (
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/service"
	srvMappers "github.com/taskbridge/marketplace/internal/service/mappers"
)

func OutcomeToApi(o service.Outcome) v1alpha1.Outcome {
	out := v1alpha1.Outcome{
		Status: v1alpha1.OutcomeStatus(o.Status),
		Reason: o.Reason,
		Offer:  srvMappers.OfferToApi(o.Offer),
	}
	if o.Job != nil {
		job := srvMappers.JobToApi(*o.Job)
		out.Job = &job
	}
	return out
}
