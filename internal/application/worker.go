package application

import "context"

// Worker runs ingestion in the background until the context is canceled.
type Worker interface {
	Start(ctx context.Context)
}
