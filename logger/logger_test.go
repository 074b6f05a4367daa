package logger_test

import (
	"bytes"

	"github.com/BenjaminRains/etlpipe/logger"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	log := logger.NewLogger("test-service", "debug", true)

	It("Should tag output with the service name", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)

		log.Info("Testing")
		Expect(logOutput.String()).To(ContainSubstring("service=test-service"))
	})

	It("Should log at info level", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)

		log.Info("Testing")
		Expect(logOutput.String()).To(ContainSubstring("level=info"))
	})

	It("Should log at warning level", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)

		log.Warn("Testing")
		Expect(logOutput.String()).To(ContainSubstring("level=warning"))
	})

	It("Should include a stack trace on Error when stack dumps are on", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)

		log.Error("Testing")
		Expect(logOutput.String()).To(ContainSubstring("level=error"))
		Expect(logOutput.String()).To(ContainSubstring("stackTrace"))
	})

	It("Should carry the message text", func() {
		logOutput := bytes.NewBufferString("")
		log.SetOutput(logOutput)

		log.Info("Testing")
		Expect(logOutput.String()).To(ContainSubstring("Testing"))
	})
})
