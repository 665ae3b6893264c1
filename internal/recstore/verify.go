package recstore

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Verify opens every record of tag and reports all that fail to
// authenticate, not just the first. It returns the number of records
// checked. An empty tag verifies every tag.
func (s *Store) Verify(ctx context.Context, tag string) (int, error) {
	recs, err := s.Export(ctx, tag)
	if err != nil {
		return 0, err
	}

	var result *multierror.Error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := s.Open(rec); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		s.logger.Warn("records failed verification",
			"tag", tag,
			"failed", len(result.Errors),
			"checked", len(recs))
	}
	return len(recs), result.ErrorOrNil()
}
