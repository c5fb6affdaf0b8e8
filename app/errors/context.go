// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package errors

import (
	"context"

	"github.com/obolnetwork/ledgerctl/app/z"
)

// WithCtxErr returns a child context whose Err is wrapped with wrapMsg and fields.
// Useful when a cancelled context error must explain which operation was interrupted.
func WithCtxErr(ctx context.Context, wrapMsg string, fields ...z.Field) context.Context {
	return ctxWrap{
		Context: ctx,
		wrapMsg: wrapMsg,
		fields:  fields,
	}
}

type ctxWrap struct {
	context.Context

	wrapMsg string
	fields  []z.Field
}

func (c ctxWrap) Err() error {
	err := c.Context.Err()
	if err == nil {
		return nil
	}

	return Wrap(err, c.wrapMsg, c.fields...)
}
