package classify

import (
	"strings"

	"tokasu/internal/domain"
)

// BuildRequest validates the composed input. Category and checked items are
// optional; a blank description is ErrEmptyInput.
func BuildRequest(description, category string, checkedItems []string) (domain.ClassificationRequest, error) {
	if strings.TrimSpace(description) == "" {
		return domain.ClassificationRequest{}, domain.ErrEmptyInput
	}
	return domain.ClassificationRequest{
		Description:  description,
		Category:     strings.TrimSpace(category),
		CheckedItems: append([]string(nil), checkedItems...),
	}, nil
}
