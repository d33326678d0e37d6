package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 至少启用一个采集器，否则没有意义
func (col *CollectorsConfig) Validate() error {
	if err := valid.Struct(col); err != nil {
		return err
	}
	if !col.OpenVPN.Enable && !col.CPU.Enable {
		return errors.New("at least one collector must be enabled (openvpn/cpu)")
	}
	if err := col.OpenVPN.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate 数据源列表不能为空、不能包含空字符串或重复项。
// 实例名称冲突需要解析 URI，由 collector.ResolveInstances 在构造时检查。
func (o *OpenVPNCollectorConfig) Validate() error {
	if err := valid.Struct(o); err != nil {
		return err
	}
	// 未启用时不参与校验
	if !o.Enable {
		return nil
	}
	if len(o.Instances) == 0 {
		return errors.New("collectors.openvpn.instances must contain at least one source")
	}
	seen := map[string]bool{}
	for _, inst := range o.Instances {
		inst = strings.TrimSpace(inst)
		if inst == "" {
			return errors.New("collectors.openvpn.instances cannot contain empty string")
		}
		if seen[inst] {
			return fmt.Errorf("collectors.openvpn.instances duplicated entry: %q", inst)
		}
		seen[inst] = true
	}
	return nil
}

// Validate 至少启用一个处理器
func (h *HandlersConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if !h.Archive.Enable {
		return errors.New("at least one handler must be enabled (archive)")
	}
	if h.Archive.Enable && strings.TrimSpace(h.Archive.LogFile) == "" {
		return errors.New("handlers.archive.log_file cannot be empty")
	}
	return nil
}
