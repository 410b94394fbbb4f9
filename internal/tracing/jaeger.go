package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
)

type JaegerConfig struct {
	ServiceName string  `env:"JAEGER_SERVICE_NAME" envDefault:"mailsync"`
	AgentHost   string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort   string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	Enabled     bool    `env:"JAEGER_ENABLED" envDefault:"false"`
	LogSpans    bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerRate float64 `env:"JAEGER_SAMPLER_RATE" envDefault:"1"`
}

func NewJaegerTracer(jaegerConfig *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	if !jaegerConfig.Enabled {
		return opentracing.NoopTracer{}, io.NopCloser(nil), nil
	}

	cfg := &jaegercfg.Configuration{
		ServiceName: jaegerConfig.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: jaegerConfig.SamplerRate,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           jaegerConfig.LogSpans,
			LocalAgentHostPort: jaegerConfig.AgentHost + ":" + jaegerConfig.AgentPort,
		},
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Jaeger tracer initialized for service %s", jaegerConfig.ServiceName)
	return tracer, closer, nil
}
