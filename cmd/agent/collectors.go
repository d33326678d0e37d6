package agent

import (
	"github.com/spf13/cobra"
)

func initCollectorFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("agent.interval", defaultCfg.Agent.Interval, "默认采集间隔")

	vpn := defaultCfg.Collectors.OpenVPN
	f.Bool("collectors.openvpn.enable", vpn.Enable, "启用 OpenVPN 状态采集")
	f.Int("collectors.openvpn.interval", vpn.Interval, "采集间隔（秒），0 使用 agent.interval")
	f.String("collectors.openvpn.method", vpn.Method, "多实例读取方式 [sequential,concurrent]")
	f.StringSlice("collectors.openvpn.instances", vpn.Instances, "状态文件路径、file:// 或 tcp://host:port，#name 指定实例名")
	f.Duration("collectors.openvpn.timeout", vpn.Timeout, "管理接口读取超时")

	f.Bool("collectors.cpu.enable", defaultCfg.Collectors.CPU.Enable, "启用 CPU/负载采集")
	f.Int("collectors.cpu.interval", defaultCfg.Collectors.CPU.Interval, "采集间隔（秒）")
	f.Bool("collectors.cpu.per_core", defaultCfg.Collectors.CPU.PerCore, "按核心输出使用率")
}

func initHandlerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	archive := defaultCfg.Handlers.Archive
	f.Bool("handlers.archive.enable", archive.Enable, "启用本地归档")
	f.String("handlers.archive.log_file", archive.LogFile, "归档文件路径（按天追加 .YYYY-MM-DD 后缀）")
	f.Int("handlers.archive.days", archive.Days, "保留的历史文件个数")
}
