package usecase

import "github.com/google/uuid"

func newUUID() string { return uuid.NewString() }
