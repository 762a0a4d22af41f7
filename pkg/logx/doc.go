// Package logx configures schedbot's structured logging.
//
// logx.Logger is a thin wrapper over zerolog that keeps:
//   - console output readable (short timestamp + file:line caller)
//   - file output JSON-structured
//   - an optional Telegram ops-chat sink (min level + rate limit)
package logx
