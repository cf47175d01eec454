package zpark

import "github.com/knightjoel/zpark/core"

type Config = core.Config

type SparkConfig = core.SparkConfig
type ZabbixConfig = core.ZabbixConfig
type RetryConfig = core.RetryConfig
type RetryClassConfig = core.RetryClassConfig

type Command = core.Command
type Room = core.Room
type Person = core.Person
type Issue = core.Issue
type MonitorStatus = core.MonitorStatus
type OutboundMessage = core.OutboundMessage

type ChatMessenger = core.ChatMessenger
type MonitorReader = core.MonitorReader
type TrustPolicy = core.TrustPolicy
type TaskSubmitter = core.TaskSubmitter
type MetricsRecorder = core.MetricsRecorder

func DefaultConfig() Config {
	return core.DefaultConfig()
}
