package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	SafeExitInst = NewSafeExit()
	go SafeExitInst.ListenSignal()
}

// SafeExit 收到第一个信号时取消任务上下文, 第二个信号时清理并退出
type SafeExit struct {
	funcs  []func()
	mu     sync.Mutex
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSafeExit() *SafeExit {
	ctx, cancel := context.WithCancel(context.Background())
	return &SafeExit{ctx: ctx, cancel: cancel}
}

// Context 任务上下文, 收到退出信号后被取消
func (s *SafeExit) Context() context.Context {
	return s.ctx
}

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Cleanup 按注册的逆序执行清理函数, 只执行一次
func (s *SafeExit) Cleanup() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i := len(s.funcs) - 1; i >= 0; i-- {
			s.funcs[i]()
		}
	})
}

func (s *SafeExit) exit() {
	s.Cleanup()
	os.Exit(1)
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for singal := range sigs {
		if s.ctx.Err() != nil {
			s.exit()
		}
		fmt.Printf("收到系统信号 %d, 正在停止任务, 请稍后\n", singal)
		s.cancel()
	}
}
