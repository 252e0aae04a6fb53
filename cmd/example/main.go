package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/azhengyongqin/novelhub/sdk"
)

// 示例：用 SDK 上传一个文本文件，通过事件通道实时跟踪处理进度。
//
// 也支持纯本地模式（不依赖服务端）：
//
//	go run ./cmd/example local
func main() {
	if len(os.Args) > 1 && os.Args[1] == "local" {
		runLocal()
		return
	}
	runRemote()
}

// runRemote 上传到服务端并订阅推送
func runRemote() {
	client := sdk.NewClientFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	content := []byte(strings.Repeat("很久很久以前，有一部等待处理的小说。\n", 64))
	result, err := client.Upload(ctx, "example-novel.txt", content)
	if err != nil {
		log.Fatalf("上传失败: %v", err)
	}
	log.Printf("任务已创建: id=%s status=%s", result.TaskID, result.Status)

	// 本地集合由远端事件驱动（服务端自己调度，本地不准入）
	store := sdk.NewTaskStore(sdk.WithProgressSource(sdk.RemoteSource{}))

	// 用服务端列表水合本地集合
	list, err := client.List(ctx, sdk.ListOptions{Page: 1, PageSize: 50})
	if err != nil {
		log.Fatalf("拉取任务列表失败: %v", err)
	}
	store.Hydrate(list.Tasks)

	wsURL := strings.Replace(client.BaseURL, "http", "ws", 1) + "/ws/tasks"
	channel := sdk.NewChannel(wsURL, store)
	defer channel.Teardown()

	// 集合变化时补订阅所有非终态任务
	store.SetOnChange(channel.SubscribeActive)

	if err := channel.Connect(); err != nil {
		log.Printf("连接事件通道失败（将自动重连）: %v", err)
	}
	channel.SubscribeActive()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("退出")
			return
		case <-ticker.C:
			task, ok := store.Get(result.TaskID)
			if !ok {
				continue
			}
			fmt.Printf("\r%s  %s  %3d%%", task.ID, task.Status, task.Progress)
			if task.Status.Terminal() {
				fmt.Println()
				if task.Status == sdk.TaskStatusCompleted {
					log.Printf("处理完成: result_url=%s", task.ResultURL)
				} else {
					log.Printf("处理失败: %s", task.ErrorMessage)
				}
				return
			}
		}
	}
}

// runLocal 纯本地演示：模拟来源驱动，观察并发帽与 FIFO 准入
func runLocal() {
	source := sdk.NewSimulatedSource()
	source.DelayMin = 100 * time.Millisecond
	source.DelayMax = 300 * time.Millisecond

	store := sdk.NewTaskStore(sdk.WithProgressSource(source))
	source.Bind(store)

	for i := 1; i <= 5; i++ {
		store.Enqueue(sdk.NewLocalTask(fmt.Sprintf("novel-%d.txt", i), int64(i*1024)))
	}

	for {
		tasks := store.Tasks()
		done := 0
		fmt.Print("\033[H\033[2J")
		for _, t := range tasks {
			fmt.Printf("%-28s %-12s %3d%%\n", t.FileName, t.Status, t.Progress)
			if t.Status.Terminal() {
				done++
			}
		}
		if done == len(tasks) {
			log.Println("全部处理完成")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}
