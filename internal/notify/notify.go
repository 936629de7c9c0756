// Package notify tells interested parties about review decisions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

type Event struct {
	Type         string                  `json:"type"`
	Kind         models.SubmissionKind   `json:"kind"`
	SubmissionID uint                    `json:"submission_id"`
	Reference    string                  `json:"reference"`
	FacilityID   uint                    `json:"facility_id"`
	Date         string                  `json:"date"`
	Status       models.SubmissionStatus `json:"status"`
	Actor        string                  `json:"actor"`
	Reason       string                  `json:"reason,omitempty"`
	At           time.Time               `json:"at"`
}

// ReviewEvent describes the new state of a reviewed submission.
func ReviewEvent(sub models.Submission, actor string) Event {
	meta := sub.GetMeta()
	return Event{
		Type:         "submission." + string(meta.Status),
		Kind:         sub.Kind(),
		SubmissionID: sub.GetID(),
		Reference:    meta.Reference,
		FacilityID:   meta.FacilityID,
		Date:         meta.Date.Format("2006-01-02"),
		Status:       meta.Status,
		Actor:        actor,
		Reason:       meta.RejectReason,
		At:           time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// New returns an SNS notifier when a topic is configured, else a log-only one.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Notifier, error) {
	if cfg.SNSTopicARN == "" {
		return NewLogNotifier(logger), nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SNS: %w", err)
	}
	return &SNSNotifier{
		client:   awssns.NewFromConfig(awsCfg),
		topicARN: cfg.SNSTopicARN,
		logger:   logger,
	}, nil
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.logger.Info("review notification",
		zap.String("type", ev.Type),
		zap.String("reference", ev.Reference),
		zap.Uint("facility_id", ev.FacilityID),
		zap.String("date", ev.Date),
		zap.String("actor", ev.Actor),
	)
	return nil
}

// publisher is the part of the SNS client used here.
type publisher interface {
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

type SNSNotifier struct {
	client   publisher
	topicARN string
	logger   *zap.Logger
}

func (n *SNSNotifier) Notify(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	out, err := n.client.Publish(ctx, &awssns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("%s %s", ev.Reference, ev.Status)),
		Message:  aws.String(string(raw)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to SNS: %w", err)
	}
	n.logger.Debug("published review notification",
		zap.String("reference", ev.Reference),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// Send delivers ev and logs instead of failing; review decisions are already committed.
func Send(ctx context.Context, n Notifier, logger *zap.Logger, ev Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		logger.Warn("notification failed", zap.String("reference", ev.Reference), zap.Error(err))
	}
}
