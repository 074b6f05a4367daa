package rdbms

import (
	"fmt"

	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

// SqlQuery streams the results of one query to the supplied handler: the
// header first, then each row scanned into a fresh []interface{}. Rows are
// pulled until exhaustion, a handler error, or ctx cancellation.
func SqlQuery(ctx context.Context, log logger.Logger, m *ConnectionManager, sqltext string, args []interface{}, rateLimited bool, i shared.SqlResultHandler) error {
	rows, err := m.QueryWithRetry(ctx, sqltext, args, rateLimited)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error fetching columns for SQL '%v': %w", sqltext, err)
	}
	log.Debug("query returned columns: ", cols)
	// Scan the values dynamically.
	lenCols := len(cols)
	scanPtrs := make([]interface{}, lenCols)
	scanVals := make([]interface{}, lenCols)
	for idx := 0; idx < lenCols; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx] // save the value.
	}
	if err = i.HandleHeader(cols); err != nil {
		return err
	}
	for rows.Next() {
		select { // quit if asked to, else continue...
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %v", err)
		}
		// Make a new row since the handler may hold onto it.
		row := make([]interface{}, lenCols)
		copy(row, scanVals)
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
