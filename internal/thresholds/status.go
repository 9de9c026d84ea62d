package thresholds

import "drainwatch/internal/models"

// AggregateStatus folds the alert kinds triggered by one reading into a
// single device status. Precedence is fixed: a sewage overflow outranks
// everything, methane outranks the rest, any other alert means the device
// needs attention. Most severe wins regardless of detection order.
func AggregateStatus(alertTypes []string) models.Status {
	if len(alertTypes) == 0 {
		return models.StatusNormal
	}
	status := models.StatusNormal
	for _, t := range alertTypes {
		switch t {
		case AlertHighSewageLevel:
			return models.StatusOverflowing
		case AlertHighMethane:
			status = models.StatusCritical
		case models.AlertTypeNormal:
			// a "normal" marker never raises the status
		default:
			if status == models.StatusNormal {
				status = models.StatusNeedsAttention
			}
		}
	}
	return status
}
