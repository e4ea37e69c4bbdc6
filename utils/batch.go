package utils

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// BatchConfig 批量操作配置
type BatchConfig struct {
	// BatchSize 批量大小
	BatchSize int
	// Concurrency 并发数量（只读视图调用建议不超过 5，避免触发 RPC 限流）
	Concurrency int
	// OnProgress 进度回调函数
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量操作进度
type BatchProgress struct {
	Completed  int
	Total      int
	Percentage int // 0-100
	Success    int
	Failed     int
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:   50,
		Concurrency: 5,
	}
}

// BatchItem 单项成功结果（保留输入索引）
type BatchItem[R any] struct {
	Index int
	Value R
}

// BatchQueryResult 批量查询结果
type BatchQueryResult[R any] struct {
	// Results 成功的结果（按输入索引排序）
	Results []BatchItem[R]
	// Errors 失败的项目（按输入索引排序）
	Errors  []BatchError
	Total   int
	Success int
	Failed  int
}

// BatchError 批量操作错误
type BatchError struct {
	Index int
	Error error
}

// BatchQuery 批量查询
//
// 对一组输入并发调用查询函数，单项失败不影响其他项。
// 只能用于没有副作用的只读调用（例如模拟视图方法），写调用必须串行走完整生命周期。
//
// 示例：
//
//	ids := []int64{1, 2, 3}
//	res, err := BatchQuery(ctx, ids, func(ctx context.Context, id int64, index int) (string, error) {
//	    return rewards.GetTokenOwner(ctx, publicKey, id)
//	}, DefaultBatchConfig())
func BatchQuery[T any, R any](
	ctx context.Context,
	items []T,
	queryFn func(ctx context.Context, item T, index int) (R, error),
	config *BatchConfig,
) (*BatchQueryResult[R], error) {
	if config == nil {
		config = DefaultBatchConfig()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	out := &BatchQueryResult[R]{
		Results: make([]BatchItem[R], 0, len(items)),
		Errors:  make([]BatchError, 0),
		Total:   len(items),
	}
	var mu sync.Mutex

	record := func(idx int, result R, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			out.Errors = append(out.Errors, BatchError{Index: idx, Error: err})
			out.Failed++
		} else {
			out.Results = append(out.Results, BatchItem[R]{Index: idx, Value: result})
			out.Success++
		}
		if config.OnProgress != nil {
			completed := out.Success + out.Failed
			config.OnProgress(BatchProgress{
				Completed:  completed,
				Total:      out.Total,
				Percentage: completed * 100 / out.Total,
				Success:    out.Success,
				Failed:     out.Failed,
			})
		}
	}

	// 分批处理
	for batchIdx, batch := range batchArray(items, batchSize) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, concurrency)
		for i, item := range batch {
			wg.Add(1)
			go func(idx int, item T) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					var zero R
					record(idx, zero, ctx.Err())
					return
				}
				defer func() { <-sem }()

				result, err := queryFn(ctx, item, idx)
				record(idx, result, err)
			}(batchIdx*batchSize+i, item)
		}
		wg.Wait()
	}

	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Index < out.Results[j].Index })
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Index < out.Errors[j].Index })
	return out, nil
}

// batchArray 将数组分批次处理
func batchArray[T any](array []T, batchSize int) [][]T {
	batches := make([][]T, 0)
	for i := 0; i < len(array); i += batchSize {
		end := i + batchSize
		if end > len(array) {
			end = len(array)
		}
		batches = append(batches, array[i:end])
	}
	return batches
}

// ParallelExecute 并行执行多个操作
//
// 结果与输入一一对应。任何一项失败时返回第一个（按输入顺序）错误，
// 其余操作仍会执行完毕，调用方不会拿到部分结果。
//
// 示例：
//
//	methods := []string{"name", "symbol"}
//	values, err := ParallelExecute(ctx, methods, func(ctx context.Context, m string) (interface{}, error) {
//	    return view(ctx, m)
//	}, 4)
func ParallelExecute[T any, R any](
	ctx context.Context,
	items []T,
	executeFn func(ctx context.Context, item T) (R, error),
	concurrency int,
) ([]R, error) {
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, item := range items {
		wg.Add(1)
		go func(index int, item T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[index] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			results[index], errs[index] = executeFn(ctx, item)
		}(i, item)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("parallel execute item %d: %w", i, err)
		}
	}
	return results, nil
}

// BatchArray 将数组分批次处理（导出函数）
func BatchArray[T any](array []T, batchSize int) [][]T {
	return batchArray(array, batchSize)
}
