package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var BreakPointInst *BreakPoint

func InitBreakPoint() {
	bp, err := NewBreakPoint(conf.BreakPoint.SaveFilePath, conf.Tm.Name, conf.Task.Workers)
	if err != nil {
		fmt.Println(err)
		panic("break point file open is error")
	}
	BreakPointInst = bp
	SafeExitInst.Register(BreakPointInst.BreakPointSafeFun)
}

// NewBreakPoint 打开 dir/name.log 断点文件并开始记录
func NewBreakPoint(dir, name string, bufSize int) (*BreakPoint, error) {
	os.MkdirAll(dir, os.ModePerm)
	filapath := filepath.Join(dir, fmt.Sprintf("%s.log", name))
	file, err := os.OpenFile(filapath, os.O_APPEND|os.O_CREATE|os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, err
	}

	b := &BreakPoint{
		file:       file,
		saveChan:   make(chan string, bufSize),
		successMap: getBackPoint(file),
		done:       make(chan struct{}),
	}
	// 开始断点任务
	go b.Start()
	return b, nil
}

// 初始化断点文件
func getBackPoint(file io.Reader) map[string]struct{} {
	res := make(map[string]struct{})

	br := bufio.NewReader(file)
	for {
		line, isPrefix, err := br.ReadLine()
		if isPrefix {
			continue
		}
		if err != nil {
			break
		}
		if len(line) > 0 {
			res[string(line)] = struct{}{}
		}
	}
	return res
}

// BreakPoint 记录已写出的瓦片, 续传时跳过.
// successMap 只在创建时写入, 之后只读.
type BreakPoint struct {
	file       *os.File
	saveChan   chan string
	successMap map[string]struct{}
	done       chan struct{}

	mu      sync.RWMutex
	isClose bool
}

func (b *BreakPoint) IsSuccessed(z, x, y int) bool {
	if b == nil {
		return false
	}
	_, ok := b.successMap[tileKey(z, x, y)]
	return ok
}

func (b *BreakPoint) SetSuccessed(z, x, y int) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.isClose {
		return
	}
	b.saveChan <- tileKey(z, x, y)
}

func (b *BreakPoint) Start() {
	log.Infof("断点记录任务已开始")
	defer close(b.done)
	for key := range b.saveChan {
		b.file.WriteString(key + "\n")
	}
}

func (b *BreakPoint) BreakPointSafeFun() {
	b.mu.Lock()
	if b.isClose {
		b.mu.Unlock()
		return
	}
	b.isClose = true
	close(b.saveChan)
	b.mu.Unlock()

	<-b.done
	b.file.Close()
	log.Infof("断点记录任务已安全退出")
}
