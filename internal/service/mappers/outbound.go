package mappers

import (
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/internal/store/model"
)

func TaskToApi(t model.Task) v1alpha1.Task {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return v1alpha1.Task{
		Id:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Tags:        tags,
		Worker:      t.Worker,
		Status:      v1alpha1.TaskStatus(t.Status),
		OfferId:     t.OfferID,
		CreatedAt:   t.CreatedAt,
	}
}

func TaskListToApi(tasks ...model.Task) v1alpha1.TaskList {
	list := make(v1alpha1.TaskList, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, TaskToApi(t))
	}
	return list
}

func OfferToApi(o model.Offer) v1alpha1.Offer {
	return v1alpha1.Offer{
		Id:            o.ID,
		TaskId:        o.TaskID,
		Employer:      o.Employer,
		Worker:        o.Worker,
		Amount:        o.Amount.String(),
		Mode:          v1alpha1.PaymentMode(o.Mode),
		DurationWeeks: o.DurationWeeks,
		LockedValue:   o.LockedValue.String(),
		Fee:           o.Fee.String(),
		FundingValue:  o.FundingValue().String(),
		FeeBps:        o.FeeBps,
		Status:        v1alpha1.OfferStatus(o.Status),
		EscrowAddress: o.EscrowAddress,
		JobAddress:    o.JobAddress,
		DeclinedAt:    o.DeclinedAt,
		CreatedAt:     o.CreatedAt,
	}
}

func OfferListToApi(offers ...model.Offer) v1alpha1.OfferList {
	list := make(v1alpha1.OfferList, 0, len(offers))
	for _, o := range offers {
		list = append(list, OfferToApi(o))
	}
	return list
}

func JobToApi(j model.Job) v1alpha1.Job {
	return v1alpha1.Job{
		Address:       j.Address,
		OfferId:       j.OfferID,
		TaskId:        j.TaskID,
		Employer:      j.Employer,
		Worker:        j.Worker,
		Public:        j.Public,
		Mode:          v1alpha1.PaymentMode(j.Mode),
		PerPeriod:     j.PerPeriod.String(),
		DurationWeeks: j.DurationWeeks,
		LockedValue:   j.LockedValue.String(),
		Fee:           j.Fee.String(),
		TxId:          j.TxID,
		RefundTxId:    j.RefundTxID,
	}
}

func QuoteToApi(r payment.Result) v1alpha1.Quote {
	return v1alpha1.Quote{
		LockedValue:  r.LockedValue.String(),
		Fee:          r.Fee.String(),
		FundingValue: r.FundingValue().String(),
		FeeBps:       r.FeeBps,
	}
}
