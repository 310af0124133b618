// Package logx configures envpool's structured logging.
//
// It wraps zerolog behind a small value type (logx.Logger) so that:
//   - Console output stays readable (short timestamp, short caller, comp tag)
//   - File output is JSON lines
//   - An optional remote sink (Telegram) receives warnings, rate limited
//
// The zero Logger is a no-op, so components can accept one unconditionally.
package logx
