package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given logger construction", t, func() {
		tempDir, err := os.MkdirTemp("", "logger_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("When created without a log file", func() {
			log, err := New("debug", "")

			Convey("It should log to the console only", func() {
				So(err, ShouldBeNil)
				So(log, ShouldNotBeNil)
				log.Infof("console test message: %s", "ok")
				log.Close()
			})
		})

		Convey("When created with a log file in a new directory", func() {
			logFile := filepath.Join(tempDir, "nested", "arkiva.log")
			log, err := New("info", logFile)

			Convey("It should create the directory and write the file on use", func() {
				So(err, ShouldBeNil)
				log.Infof("file test message")
				log.Close()

				_, err := os.Stat(logFile)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the level string is invalid", func() {
			log, err := New("not-a-level", "")

			Convey("It should fall back to info instead of failing", func() {
				So(err, ShouldBeNil)
				So(log, ShouldNotBeNil)
				log.Close()
			})
		})

		Convey("ForJob should return a usable child logger", func() {
			log, err := New("info", "")
			So(err, ShouldBeNil)

			child := log.ForJob("docs")
			So(child, ShouldNotBeNil)
			child.Infof("tagged message")
			log.Close()
		})
	})
}
