package events

// Config holds configuration for run notifications.
type Config struct {
	// Brokers is a comma separated list of Kafka brokers. Empty disables publishing.
	Brokers string `mapstructure:"brokers" default:""`
	// Topic receives one message per finished stage.
	Topic string `mapstructure:"topic" default:"harvest.runs"`
}
