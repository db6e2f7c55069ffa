package mappers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/internal/store/model"
)

const maxListLimit = 500

func TaskFilterFromQuery(tag, worker, limit string) (service.TaskFilter, error) {
	l, err := parseLimit(limit)
	if err != nil {
		return service.TaskFilter{}, err
	}
	return service.TaskFilter{
		Tag:    tag,
		Worker: strings.ToLower(worker),
		Limit:  l,
	}, nil
}

// OfferFilterFromQuery reads a comma separated list of statuses, an optional task id and a limit.
func OfferFilterFromQuery(status, taskID, limit string) (service.OfferFilter, error) {
	filter := service.OfferFilter{}

	if status != "" {
		for _, s := range strings.Split(status, ",") {
			st, ok := v1alpha1.StringToOfferStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !ok {
				return filter, fmt.Errorf("unknown offer status %q", s)
			}
			filter.Statuses = append(filter.Statuses, model.OfferStatus(st))
		}
	}

	if taskID != "" {
		id, err := uuid.Parse(taskID)
		if err != nil {
			return filter, fmt.Errorf("invalid task_id %q", taskID)
		}
		filter.TaskID = &id
	}

	l, err := parseLimit(limit)
	if err != nil {
		return filter, err
	}
	filter.Limit = l

	return filter, nil
}

func parseLimit(limit string) (int, error) {
	if limit == "" {
		return 0, nil
	}
	l, err := strconv.Atoi(limit)
	if err != nil || l < 0 || l > maxListLimit {
		return 0, fmt.Errorf("limit must be between 0 and %d", maxListLimit)
	}
	return l, nil
}
