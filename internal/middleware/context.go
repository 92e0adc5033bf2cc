package middleware

import "context"

type contextKey string

const learnerSinkKey contextKey = "learnerSink"

func withLearnerSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, learnerSinkKey, sink)
}

func learnerSink(ctx context.Context) *string {
	sink, _ := ctx.Value(learnerSinkKey).(*string)
	return sink
}
