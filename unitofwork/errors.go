package unitofwork

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by errors returned from the unit of work.
const (
	TextCodeInvalidState      = "INVALID_STATE"
	TextCodeMissingIdentity   = "MISSING_IDENTITY"
	TextCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	TextCodeInvalidFieldValue = "INVALID_FIELD_VALUE"
	TextCodeDetachedEntity    = "DETACHED_ENTITY"
	TextCodeStorage           = "STORAGE"
)

// errorContext carries whatever is known about the entity an error is about.
type errorContext struct {
	entity     string
	identifier string
	field      string
}

func (c errorContext) metadata() map[string]any {
	md := map[string]any{}
	if c.entity != "" {
		md["entity"] = c.entity
	}
	if c.identifier != "" {
		md["identifier"] = c.identifier
	}
	if c.field != "" {
		md["field"] = c.field
	}
	return md
}

func newError(ec errorContext, category goerrors.Category, code, format string, args ...any) error {
	return goerrors.New(fmt.Sprintf(format, args...), category).
		WithTextCode(code).
		WithMetadata(ec.metadata())
}

func invalidStateError(ec errorContext, format string, args ...any) error {
	return newError(ec, goerrors.CategoryConflict, TextCodeInvalidState, format, args...)
}

func missingIdentityError(ec errorContext, format string, args ...any) error {
	return newError(ec, goerrors.CategoryBadInput, TextCodeMissingIdentity, format, args...)
}

func duplicateIdentityError(ec errorContext) error {
	return newError(ec, goerrors.CategoryConflict, TextCodeDuplicateIdentity,
		"another instance of %s with identifier %q is already managed", ec.entity, ec.identifier)
}

func detachedEntityError(ec errorContext) error {
	return newError(ec, goerrors.CategoryBadInput, TextCodeDetachedEntity,
		"entity %s is detached from the unit of work", ec.entity)
}

func invalidFieldValueError(ec errorContext, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation,
		fmt.Sprintf("invalid value for %s.%s", ec.entity, ec.field)).
		WithTextCode(TextCodeInvalidFieldValue).
		WithMetadata(ec.metadata())
}

func storageError(ec errorContext, op string, err error) error {
	md := ec.metadata()
	md["operation"] = op
	return goerrors.Wrap(err, goerrors.CategoryInternal,
		fmt.Sprintf("%s of %s failed", op, ec.entity)).
		WithTextCode(TextCodeStorage).
		WithMetadata(md)
}

func hasTextCode(err error, code string) bool {
	var ge *goerrors.Error
	return errors.As(err, &ge) && ge.TextCode == code
}

// IsInvalidState reports whether err rejected an operation for the entity's
// lifecycle state or the unit of work's commit phase.
func IsInvalidState(err error) bool { return hasTextCode(err, TextCodeInvalidState) }

// IsMissingIdentity reports whether err was caused by an unassigned identifier.
func IsMissingIdentity(err error) bool { return hasTextCode(err, TextCodeMissingIdentity) }

// IsDuplicateIdentity reports whether err rejected a second instance for one identity.
func IsDuplicateIdentity(err error) bool { return hasTextCode(err, TextCodeDuplicateIdentity) }

// IsInvalidFieldValue reports whether err is a field validation failure.
func IsInvalidFieldValue(err error) bool { return hasTextCode(err, TextCodeInvalidFieldValue) }

// IsDetachedEntity reports whether err was raised for a detached entity.
func IsDetachedEntity(err error) bool { return hasTextCode(err, TextCodeDetachedEntity) }

// IsStorage reports whether err wraps a persister or driver failure.
func IsStorage(err error) bool { return hasTextCode(err, TextCodeStorage) }
