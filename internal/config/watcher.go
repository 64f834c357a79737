package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// StartWatch 监听配置变化，在变更时回调 onChange(old, new)
// 仅 Nacos 支持监听；使用 Etcd / 本地文件时跳过
func StartWatch(_ context.Context, onChange func(oldCfg, newCfg *Config)) error {
	if strings.TrimSpace(os.Getenv("NACOS_SERVER_ADDR")) == "" {
		fmt.Println("[Config] Nacos 未配置，跳过配置监听")
		return nil
	}

	p, err := readNacosParams()
	if err != nil {
		return err
	}
	client, err := newNacosClient(p)
	if err != nil {
		return fmt.Errorf("failed to create nacos config client for watch: %w", err)
	}

	err = client.ListenConfig(vo.ConfigParam{
		DataId: p.dataID,
		Group:  p.group,
		OnChange: func(namespace, group, dataId, data string) {
			fmt.Printf("[Config] Nacos 配置变更: namespace=%s, group=%s, dataId=%s\n", namespace, group, dataId)

			newCfg, err := Parse(dataId, []byte(data))
			if err != nil {
				fmt.Printf("[Config] 解析 Nacos 配置失败，保持旧配置: error=%v\n", err)
				return
			}
			newCfg.ApplyDefaults()

			oldCfg := GetCurrent()
			SetCurrent(newCfg)
			if onChange != nil {
				onChange(oldCfg, newCfg)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to listen nacos config: %w", err)
	}

	fmt.Printf("[Config] Nacos 配置监听已启动: dataId=%s, group=%s\n", p.dataID, p.group)
	return nil
}
