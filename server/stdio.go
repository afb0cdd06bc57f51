package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/hrygo/engram/server/router/rpc"
)

// maxLineSize bounds a single stdio frame. Memorize payloads are text, so
// 8 MiB leaves generous headroom.
const maxLineSize = 8 * 1024 * 1024

// RunStdio serves newline-delimited JSON-RPC over stdin/stdout until EOF.
// Stdout carries only protocol frames; logging must already be routed to
// stderr.
func RunStdio(ctx context.Context, handler *rpc.Handler) error {
	return runStdio(ctx, handler, os.Stdin, os.Stdout)
}

func runStdio(ctx context.Context, handler *rpc.Handler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	writer := bufio.NewWriter(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		response := handler.Handle(ctx, line)
		if response == nil {
			continue
		}
		if _, err := writer.Write(response); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}
