// Package telegram connects the bot to the Telegram Bot API.
//
// Bot long-polls for updates and converts each message into a dialog.Event:
// commands, plain text, voice notes, audio files and audio documents such as
// WAV uploads. It also implements dialog.Messenger for outbound messages and
// file downloads.
package telegram
