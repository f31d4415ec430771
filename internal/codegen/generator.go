// Package codegen выдаёт короткие коды записей, которые удобно продиктовать или переписать.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Alphabet без визуально похожих символов (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultMinLength = 6
	DefaultMaxLength = 10
	DefaultAttempts  = 5
)

// Store проверяет уникальность в том же хранилище (и, желательно, в той же транзакции),
// куда будет вставлена запись.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	CountAppointments(ctx context.Context) (int64, error)
}

// ExhaustionError - не удалось подобрать свободный код даже на максимальной длине.
type ExhaustionError struct {
	MaxLength int
	Attempts  int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("appointment code space exhausted: %d attempts per length up to %d", e.Attempts, e.MaxLength)
}

type Generator struct {
	alphabet  string
	minLength int
	maxLength int
	attempts  int
	random    io.Reader
}

type Option func(*Generator)

func WithRandom(r io.Reader) Option { return func(g *Generator) { g.random = r } }

func WithMaxLength(n int) Option { return func(g *Generator) { g.maxLength = n } }

func WithAttempts(n int) Option { return func(g *Generator) { g.attempts = n } }

func New(opts ...Option) *Generator {
	g := &Generator{
		alphabet:  Alphabet,
		minLength: DefaultMinLength,
		maxLength: DefaultMaxLength,
		attempts:  DefaultAttempts,
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxLength < g.minLength {
		g.maxLength = g.minLength
	}
	if g.attempts <= 0 {
		g.attempts = 1
	}
	return g
}

// LengthFor - стартовая длина кода по числу уже существующих записей.
func LengthFor(existing int64) int {
	switch {
	case existing >= 1_000_000:
		return 9
	case existing >= 100_000:
		return 8
	case existing >= 10_000:
		return 7
	default:
		return DefaultMinLength
	}
}

// Generate подбирает свободный код: на каждой длине не больше attempts попыток,
// затем длина растёт на единицу, пока не упрётся в maxLength.
func (g *Generator) Generate(ctx context.Context, store Store) (string, error) {
	count, err := store.CountAppointments(ctx)
	if err != nil {
		return "", fmt.Errorf("count appointments: %w", err)
	}

	length := LengthFor(count)
	if length < g.minLength {
		length = g.minLength
	}
	if length > g.maxLength {
		length = g.maxLength
	}

	for ; length <= g.maxLength; length++ {
		for attempt := 0; attempt < g.attempts; attempt++ {
			code, err := g.draw(length)
			if err != nil {
				return "", err
			}
			exists, err := store.CodeExists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("check code uniqueness: %w", err)
			}
			if !exists {
				return code, nil
			}
		}
	}

	return "", &ExhaustionError{MaxLength: g.maxLength, Attempts: g.attempts}
}

func (g *Generator) draw(length int) (string, error) {
	base := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(g.random, base)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}
