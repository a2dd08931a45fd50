package services

import (
	"context"
	"crypto/rand"
	"fmt"

	"quizdeck/models"
	"quizdeck/store"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts caps the generate-and-check loop. The code space
// (36^6) dwarfs any realistic number of live sessions, so hitting the
// cap means something is wrong with the uniqueness read.
const maxCodeAttempts = 20

// CodeGenerator produces collision-checked join codes. Uniqueness is
// only checked against live sessions; completed sessions release their
// code for reuse.
type CodeGenerator struct {
	store store.Store
}

func NewCodeGenerator(s store.Store) *CodeGenerator {
	return &CodeGenerator{store: s}
}

// Generate returns a random 6-character uppercase alphanumeric code.
func (g *CodeGenerator) Generate() string {
	buf := make([]byte, models.CodeLength)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// IsUnique reports whether no live session holds the code.
func (g *CodeGenerator) IsUnique(ctx context.Context, code string) (bool, error) {
	inUse, err := g.store.CodeInUse(ctx, code)
	if err != nil {
		return false, err
	}
	return !inUse, nil
}

// GenerateUnique loops generate-and-check until it finds a free code,
// giving up with ErrCodeSpaceExhausted after maxCodeAttempts tries.
func (g *CodeGenerator) GenerateUnique(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := g.Generate()
		unique, err := g.IsUnique(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking code uniqueness: %w", err)
		}
		if unique {
			return code, nil
		}
	}
	return "", models.ErrCodeSpaceExhausted
}
