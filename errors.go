package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTileIO 瓦片读取或解码失败
	ErrTileIO = errors.New("tile io failure")
	// ErrConfig 配置错误, 仅在构造时产生
	ErrConfig = errors.New("configuration error")
)

// TileError records an IO failure for one tile address.
type TileError struct {
	Zoom int
	X    int
	Y    int
	Err  error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile(z:%d, x:%d, y:%d): %v", e.Zoom, e.X, e.Y, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// Is makes every TileError match ErrTileIO.
func (e *TileError) Is(target error) bool { return target == ErrTileIO }

func tileIOError(zoom, x, y int, err error) error {
	if err == nil {
		return nil
	}
	if isCanceled(err) {
		return err
	}
	var te *TileError
	if errors.As(err, &te) {
		return err
	}
	return &TileError{Zoom: zoom, X: x, Y: y, Err: err}
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// isCanceled 取消信号必须原样向上传递
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
