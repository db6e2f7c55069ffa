package mappers

import (
	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/money"
	"github.com/thoas/go-funk"
)

type TaskCreateForm struct {
	Name        string
	Description string
	Tags        []string
	Worker      string
}

func (f TaskCreateForm) ToTask() model.Task {
	return model.Task{
		Name:        f.Name,
		Description: f.Description,
		Tags:        funk.UniqString(f.Tags),
		Worker:      f.Worker,
		Status:      model.TaskStatusOpen,
	}
}

func TaskFormFromApi(worker string, resource v1alpha1.TaskCreate) TaskCreateForm {
	return TaskCreateForm{
		Name:        resource.Name,
		Description: resource.Description,
		Tags:        resource.Tags,
		Worker:      worker,
	}
}

type OfferCreateForm struct {
	TaskID        uuid.UUID
	Employer      string
	Amount        money.Amount
	Mode          payment.Mode
	DurationWeeks int64
}

// ToOffer builds the pending offer priced by result. The worker is copied from the task.
func (f OfferCreateForm) ToOffer(task model.Task, result payment.Result) model.Offer {
	return model.Offer{
		ID:            uuid.New(),
		TaskID:        task.ID,
		Employer:      f.Employer,
		Worker:        task.Worker,
		Amount:        f.Amount,
		Mode:          f.Mode,
		DurationWeeks: f.DurationWeeks,
		LockedValue:   result.LockedValue,
		Fee:           result.Fee,
		FeeBps:        result.FeeBps,
		Status:        model.OfferStatusPending,
	}
}

func OfferFormFromApi(taskID uuid.UUID, employer string, resource v1alpha1.OfferCreate) (OfferCreateForm, error) {
	amount, err := money.Parse(resource.Amount)
	if err != nil {
		return OfferCreateForm{}, err
	}

	return OfferCreateForm{
		TaskID:        taskID,
		Employer:      employer,
		Amount:        amount,
		Mode:          payment.Mode(resource.Mode),
		DurationWeeks: resource.DurationWeeks,
	}, nil
}
