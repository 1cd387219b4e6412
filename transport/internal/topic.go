// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"regexp"
	"strings"

	"github.com/visisec/edge-sdk/errors"
)

type (
	// TopicPattern is a topic with named {token} placeholders.
	TopicPattern struct {
		name    string
		pattern string
	}

	// TopicFilter is a subscription filter that can recover the tokens a
	// matching topic was published with.
	TopicFilter struct {
		filter string
		regex  *regexp.Regexp
		names  []string
	}
)

const (
	topicLabel = `[^ "+#{}/]+`
	topicToken = `\{` + topicLabel + `\}`
	topicLevel = `(` + topicLabel + `|` + topicToken + `)`
	topicMatch = `(` + topicLabel + `)`
)

var (
	matchLabel   = regexp.MustCompile(`^` + topicLabel + `$`)
	matchToken   = regexp.MustCompile(topicToken)
	matchTopic   = regexp.MustCompile(`^` + topicLabel + `(/` + topicLabel + `)*$`)
	matchPattern = regexp.MustCompile(`^` + topicLevel + `(/` + topicLevel + `)*$`)
)

// NewTopicPattern validates a pattern, prefixes the namespace, and resolves
// the tokens known at construction time.
func NewTopicPattern(
	name, pattern string,
	tokens map[string]string,
	namespace string,
) (*TopicPattern, error) {
	if namespace != "" {
		if !ValidTopic(namespace) {
			return nil, &errors.Error{
				Message:       "invalid topic namespace",
				Kind:          errors.ConfigurationInvalid,
				PropertyName:  "Namespace",
				PropertyValue: namespace,
			}
		}
		pattern = namespace + `/` + pattern
	}

	if !matchPattern.MatchString(pattern) {
		return nil, &errors.Error{
			Message:       "invalid topic pattern",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  name,
			PropertyValue: pattern,
		}
	}

	resolved, err := replaceTokens(errors.ConfigurationInvalid, pattern, tokens)
	if err != nil {
		return nil, err
	}
	return &TopicPattern{name, resolved}, nil
}

// Topic fully resolves the pattern for publishing.
func (tp *TopicPattern) Topic(tokens map[string]string) (string, error) {
	topic, err := replaceTokens(errors.ArgumentInvalid, tp.pattern, tokens)
	if err != nil {
		return "", err
	}

	if !ValidTopic(topic) {
		if missing := matchToken.FindString(topic); missing != "" {
			return "", &errors.Error{
				Message:      "unresolved topic token",
				Kind:         errors.ArgumentInvalid,
				PropertyName: missing[1 : len(missing)-1],
			}
		}
		return "", &errors.Error{
			Message:       "invalid topic",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  tp.name,
			PropertyValue: topic,
		}
	}
	return topic, nil
}

// Filter generates a subscription filter where unresolved tokens become "+"
// wildcards.
func (tp *TopicPattern) Filter() (*TopicFilter, error) {
	names := matchToken.FindAllString(tp.pattern, -1)
	for i, token := range names {
		names[i] = token[1 : len(token)-1]
	}

	escaped := regexp.QuoteMeta(tp.pattern)
	for _, token := range names {
		escaped = strings.ReplaceAll(escaped, `\{`+token+`\}`, topicMatch)
	}
	regex, err := regexp.Compile(`^` + escaped + `$`)
	if err != nil {
		return nil, err
	}

	filter := matchToken.ReplaceAllString(tp.pattern, `+`)
	return &TopicFilter{filter, regex, names}, nil
}

// Filter provides the MQTT topic filter string.
func (tf *TopicFilter) Filter() string {
	return tf.filter
}

// Tokens indicates whether the topic matched and resolves its topic tokens.
func (tf *TopicFilter) Tokens(topic string) (map[string]string, bool) {
	match := tf.regex.FindStringSubmatch(topic)
	if match == nil {
		return nil, false
	}

	tokens := make(map[string]string, len(tf.names))
	for i, val := range match[1:] {
		tokens[tf.names[i]] = val
	}
	return tokens, true
}

// ValidTopic returns whether the provided string is a fully-resolved topic.
func ValidTopic(topic string) bool {
	return matchTopic.MatchString(topic)
}

func replaceTokens(
	kind errors.Kind,
	pattern string,
	tokens map[string]string,
) (string, error) {
	for k, v := range tokens {
		if !matchLabel.MatchString(k) || !matchLabel.MatchString(v) {
			return "", &errors.Error{
				Message:       "invalid topic token",
				Kind:          kind,
				PropertyName:  k,
				PropertyValue: v,
			}
		}
		pattern = strings.ReplaceAll(pattern, `{`+k+`}`, v)
	}
	return pattern, nil
}
