package service

import "errors"

var (
	ErrScanNotCompleted  = errors.New("fridge scan is not completed")
	ErrNoRecipes         = errors.New("cookbook has no recipes")
	ErrLookupInProgress  = errors.New("a product lookup is already in progress")
	ErrNoPendingReview   = errors.New("no lookup awaiting review")
	ErrJobNotCompleted   = errors.New("job is not completed")
	ErrNoImages          = errors.New("at least one image is required")
	ErrTooManyImages     = errors.New("too many images")
	ErrWrongScanKind     = errors.New("scan is not a fridge scan")
	ErrInvalidName       = errors.New("cookbook name must not be blank")
	ErrCookbookNameTaken = errors.New("a cookbook with this name already exists")
	ErrCookbookBusy      = errors.New("cookbook has active jobs")
)
