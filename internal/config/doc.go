// Package config 负责加载 keeper 的运行配置：先读取 JSON 文件，再以环境变量覆盖，
// 最后补齐默认值。环境变量名沿用线上部署脚本中的命名。
package config
