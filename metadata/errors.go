package metadata

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeMapping marks errors caused by missing or inconsistent mappings.
const TextCodeMapping = "MAPPING"

func mappingError(class string, err error) error {
	var ge *goerrors.Error
	if errors.As(err, &ge) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("mapping error on %s", class)).
		WithTextCode(TextCodeMapping).
		WithMetadata(map[string]any{"entity": class})
}

func mappingErrorf(class, format string, args ...any) error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryValidation).
		WithTextCode(TextCodeMapping).
		WithMetadata(map[string]any{"entity": class})
}

// IsMappingError reports whether err was raised by the metadata layer.
func IsMappingError(err error) bool {
	var ge *goerrors.Error
	return errors.As(err, &ge) && ge.TextCode == TextCodeMapping
}
