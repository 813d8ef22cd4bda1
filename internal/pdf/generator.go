// Package pdf 使用 go-rod 在无头浏览器中把卡片页 HTML 打印成 PDF。
package pdf

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Generator keeps one headless Chromium for the worker's lifetime and opens
// a page per document. A failed page drops the browser so the next document
// starts from a fresh process.
type Generator struct {
	timeout time.Duration

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
}

// NewGenerator 返回生成器；timeout 为单个文档的渲染上限。
func NewGenerator(timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{timeout: timeout}
}

// Render prints an HTML document to PDF bytes. The sheet's CSS decides the paper size.
func (g *Generator) Render(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := g.acquire()
	if err != nil {
		return nil, err
	}
	data, err := g.print(browser.Context(ctx), html)
	if err != nil && ctx.Err() == nil {
		g.drop(browser)
	}
	return data, err
}

func (g *Generator) print(browser *rod.Browser, html []byte) ([]byte, error) {
	page, err := browser.Timeout(g.timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Timeout(g.timeout)
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	// 背景图来自目录 CDN，等网络空闲后再打印。
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	_ = page.WaitIdle(2 * time.Second)

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, nil
}

func (g *Generator) acquire() (*rod.Browser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.browser != nil {
		return g.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	g.launch, g.browser = l, browser
	return browser, nil
}

// drop 只关闭出错的那个浏览器，并发任务可能已经换上了新的实例。
func (g *Generator) drop(failed *rod.Browser) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.browser == failed {
		g.closeLocked()
	}
}

// Close 在 worker 退出时调用。
func (g *Generator) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
}

func (g *Generator) closeLocked() {
	if g.browser != nil {
		_ = g.browser.Close()
		g.browser = nil
	}
	if g.launch != nil {
		g.launch.Cleanup()
		g.launch = nil
	}
}
