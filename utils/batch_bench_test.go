package utils

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/quizchain/client-sdk-go/types"
)

// simulatedView 模拟一次只读视图调用的延迟
func simulatedView(ctx context.Context, id int64) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(50 * time.Microsecond):
	}
	return "G-owner", nil
}

func tokenIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func BenchmarkBatchQuery_Owners(b *testing.B) {
	for _, concurrency := range []int{1, 5, 20} {
		b.Run("concurrency-"+strconv.Itoa(concurrency), func(b *testing.B) {
			ctx := context.Background()
			ids := tokenIDs(200)
			cfg := &BatchConfig{BatchSize: 50, Concurrency: concurrency}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = BatchQuery(ctx, ids, func(ctx context.Context, id int64, _ int) (string, error) {
					return simulatedView(ctx, id)
				}, cfg)
			}
		})
	}
}

func BenchmarkParallelExecute_MetadataViews(b *testing.B) {
	ctx := context.Background()
	views := []string{"name", "symbol", "token_uri", "token_image"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParallelExecute(ctx, views, func(ctx context.Context, view string) (string, error) {
			return simulatedView(ctx, int64(len(view)))
		}, 4)
	}
}

func BenchmarkParseSubmissionResult(b *testing.B) {
	res := &types.SubmissionResult{
		TxHash:        "abc",
		Status:        types.TxStatusSuccess,
		ResultXDR:     successResultXDR(b),
		ResultMetaXDR: metaV3XDR(b, u64Val(1)),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseSubmissionResult(res); err != nil {
			b.Fatal(err)
		}
	}
}
