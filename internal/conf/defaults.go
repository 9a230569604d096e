// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PalayGuard")
	viper.SetDefault("main.timeas24h", true)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "palayguard.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", "Sunday")

	viper.SetDefault("paddynet.debug", false)
	viper.SetDefault("paddynet.modelpath", "models/paddynet.tflite")
	viper.SetDefault("paddynet.labelpath", "")
	viper.SetDefault("paddynet.threads", 0)
	viper.SetDefault("paddynet.topk", 5)
	viper.SetDefault("paddynet.usexnnpack", true)

	viper.SetDefault("localizer.strategy", "local")
	viper.SetDefault("localizer.minregionscore", 0.45)
	viper.SetDefault("localizer.remote.endpoint", "")
	viper.SetDefault("localizer.remote.apikey", "")
	viper.SetDefault("localizer.remote.timeout", 10)
	viper.SetDefault("localizer.remote.boxorigin", "center")
	viper.SetDefault("localizer.remote.ratelimit", 2.0)
	viper.SetDefault("localizer.local.modelpath", "models/detector.tflite")
	viper.SetDefault("localizer.local.labelpath", "models/detector_labels.txt")
	viper.SetDefault("localizer.local.allowlist", []string{})
	viper.SetDefault("localizer.local.minscore", 0.3)

	viper.SetDefault("detection.minconfidence", 90)
	viper.SetDefault("detection.minmargin", 10)
	viper.SetDefault("detection.nopestlabel", "no pest")

	viper.SetDefault("realtime.interval", 15)
	viper.SetDefault("realtime.processingtime", false)

	viper.SetDefault("realtime.scan.interval", 1500)

	viper.SetDefault("realtime.source.type", "directory")
	viper.SetDefault("realtime.source.url", "")
	viper.SetDefault("realtime.source.path", "frames/")
	viper.SetDefault("realtime.source.timeout", 5)

	viper.SetDefault("realtime.timeouts.preprocess", 5)
	viper.SetDefault("realtime.timeouts.localize", 10)
	viper.SetDefault("realtime.timeouts.classify", 10)

	viper.SetDefault("realtime.export.enabled", true)
	viper.SetDefault("realtime.export.debug", false)
	viper.SetDefault("realtime.export.path", "clips/")
	viper.SetDefault("realtime.export.retention.enabled", true)
	viper.SetDefault("realtime.export.retention.debug", false)
	viper.SetDefault("realtime.export.retention.maxage", "30d")
	viper.SetDefault("realtime.export.retention.minclips", 10)

	viper.SetDefault("realtime.log.enabled", false)
	viper.SetDefault("realtime.log.path", "detections.txt")

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.debug", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "palayguard/detections")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")
	viper.SetDefault("realtime.mqtt.retain", false)

	viper.SetDefault("realtime.spray.enabled", false)
	viper.SetDefault("realtime.spray.topic", "palayguard/spray/command")
	viper.SetDefault("realtime.spray.minconfidence", 90)
	viper.SetDefault("realtime.spray.cooldown", 600)
	viper.SetDefault("realtime.spray.duration", 5)
	viper.SetDefault("realtime.spray.dangerlevels", []string{"high", "critical"})

	viper.SetDefault("realtime.notification.enabled", false)
	viper.SetDefault("realtime.notification.providers", []string{})
	viper.SetDefault("realtime.notification.mindangerlevel", "medium")
	viper.SetDefault("realtime.notification.interval", 300)

	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8091")

	viper.SetDefault("realtime.dashboard.enabled", true)
	viper.SetDefault("realtime.dashboard.listen", "127.0.0.1:8090")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "palayguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "palayguard")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "palayguard")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
