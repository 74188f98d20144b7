package repositories

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/modgate/backend/internal/models"
)

// psql builds postgres-style ($1) statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// wrap maps pgx.ErrNoRows onto NotFound; everything else is a persistence failure.
func wrap(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return models.WrapPersistence(op, err)
}
