// Package mqtt announces fired alarms on an MQTT broker. Each alarm is
// published as JSON to <topic_prefix>/alarm so home automation can
// react to it, and a Home Assistant discovery message registers a
// "last alarm" sensor fed from the same topic.
//
// The announcer uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it republishes the retained discovery config and an
// "online" availability message; a will message flips availability to
// "offline" on unexpected disconnects.
package mqtt
