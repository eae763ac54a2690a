// Package config 提供 voicebridge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → VOICEBRIDGE_* 环境变量 的顺序叠加，
// 最后用 OPENAI_API_KEY 等通用变量补全缺失的凭证。
package config
